// Package socrata publishes warehouse trips to an open-data platform
// dataset.
//
// The sink reads trips back out of the warehouse for a civil time
// range, reshapes them into the dataset's row format (flat device ids,
// floating timestamps with civil zone variants, derived calendar
// columns) and upserts the batch through the platform's resource API.
// The platform's per-batch result is returned as-is so callers can
// translate row errors into block status.
package socrata
