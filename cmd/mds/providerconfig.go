package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/atd-dts/mds-ingest/pkg/config"
	"github.com/atd-dts/mds-ingest/pkg/objectstore"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

var providerConfigCmd = &cobra.Command{
	Use:   "provider-config",
	Short: "Manage the configuration documents in the object store",
	Long: `Provider-config downloads, uploads and deletes the JSON configuration
documents the pipeline reads from the object store. The file argument
accepts the shortcuts 'providers' and 'settings' for the two documents
of the selected stage, or any object key.

Uploads are encrypted unless --plain-text is given. Deleting removes
every stored version of the key.

Examples:
  # Download the staging settings document
  mds provider-config --file settings --download

  # Upload a new providers document to production, encrypted
  mds provider-config --production --file providers.json --upload-path config/providers_production.json --upload

  # Remove a scratch file and all its versions
  mds provider-config --file test/scratch.json --delete`,
	RunE: runProviderConfig,
}

func init() {
	providerConfigCmd.Flags().String("file", "", "Document to act on: 'providers', 'settings' or an object key (required)")
	providerConfigCmd.Flags().Bool("download", false, "Download the document to the working directory")
	providerConfigCmd.Flags().Bool("upload", false, "Upload the local file named by --file to --upload-path")
	providerConfigCmd.Flags().Bool("delete", false, "Delete the document and every stored version of it")
	providerConfigCmd.Flags().String("upload-path", "", "Object key to upload to")
	providerConfigCmd.Flags().Bool("plain-text", false, "Upload without encryption")
	providerConfigCmd.Flags().Bool("production", false, "Act on the production configuration")
	_ = providerConfigCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(providerConfigCmd)
}

func runProviderConfig(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	download, _ := cmd.Flags().GetBool("download")
	upload, _ := cmd.Flags().GetBool("upload")
	del, _ := cmd.Flags().GetBool("delete")
	uploadPath, _ := cmd.Flags().GetString("upload-path")
	plainText, _ := cmd.Flags().GetBool("plain-text")
	production, _ := cmd.Flags().GetBool("production")

	actions := 0
	for _, on := range []bool{download, upload, del} {
		if on {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of --download, --upload or --delete is required")
	}

	// The stage is explicit here: this tool edits a specific stage's
	// documents, whatever the ambient run mode says.
	if production {
		os.Setenv("ATD_MDS_RUN_MODE", string(types.RunModeProduction))
	} else {
		os.Setenv("ATD_MDS_RUN_MODE", string(types.RunModeStaging))
	}

	env := config.FromEnv()
	blobs, err := objectstore.New(objectstore.Config{
		Region:    env.Region,
		AccessKey: env.AccessKey,
		SecretKey: env.SecretKey,
		Bucket:    env.Bucket,
		FernetKey: env.FernetKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %v", err)
	}

	key := resolveConfigKey(file, env)
	fmt.Printf("Stage: %s\n", env.Stage())

	ctx, stop := signalContext()
	defer stop()

	switch {
	case download:
		return downloadConfig(ctx, blobs, key)
	case upload:
		if uploadPath == "" {
			return fmt.Errorf("--upload-path is required with --upload")
		}
		return uploadConfig(ctx, blobs, file, uploadPath, !plainText)
	default:
		return deleteConfig(ctx, blobs, key)
	}
}

// resolveConfigKey expands the providers/settings shortcuts to the
// stage's document keys. Anything else is used as the object key.
func resolveConfigKey(file string, env config.Env) string {
	switch file {
	case "providers":
		return env.ProvidersKey
	case "settings":
		return env.SettingsKey
	}
	return file
}

func downloadConfig(ctx context.Context, blobs *objectstore.Store, key string) error {
	fmt.Printf("Downloading from object store: %s\n", key)

	raw, err := blobs.GetBytes(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to download %s: %v", key, err)
	}

	// Re-indent JSON documents; anything else is written as stored.
	var pretty bytes.Buffer
	body := raw
	if json.Valid(raw) {
		if err := json.Indent(&pretty, raw, "", "  "); err == nil {
			body = pretty.Bytes()
		}
	}

	local := "./" + path.Base(key)
	if err := os.WriteFile(local, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %v", local, err)
	}

	fmt.Printf("✓ File downloaded to: %s\n", local)
	return nil
}

func uploadConfig(ctx context.Context, blobs *objectstore.Store, localPath, key string, encrypt bool) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%s is not valid JSON", localPath)
	}

	fmt.Printf("Uploading %s to object store: %s\n", localPath, key)
	if !encrypt {
		fmt.Println("  Encryption: disabled (plain text)")
	}

	ack, err := blobs.Put(ctx, key, data, encrypt)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %v", key, err)
	}

	fmt.Printf("✓ Saved to '%s' (version %s)\n", ack.Key, ack.VersionID)
	return nil
}

func deleteConfig(ctx context.Context, blobs *objectstore.Store, key string) error {
	fmt.Printf("Deleting all versions of: %s\n", key)

	n, err := blobs.DeleteAllVersions(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %v", key, err)
	}

	fmt.Printf("✓ Deleted %d version(s) of '%s'\n", n, key)
	return nil
}
