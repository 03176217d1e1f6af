/*
Package timezone converts the schedule table's civil hours into concrete
time ranges and formats the timestamps the pipeline writes.

The schedule is keyed by wall-clock hours in a named civil zone
(US/Central by default). A Window localizes one of those hours and extends
it by an offset, yielding the half-open [Start, End) range used for
provider queries and object-store paths.

Provider feeds mix second and millisecond epochs; TruncateEpoch and
FormatEpoch normalize both to whole-second wall-clock timestamps with the
zone abbreviation appended.
*/
package timezone
