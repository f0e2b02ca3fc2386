// Package vimap holds the localization map model and its on-disk formats.
//
// Two mutually exclusive folder schemas exist. A summary map folder carries
// localization_summary.json, a lightweight landmark-position table that
// loads fast and is the common case for repeated runs. A full map folder
// carries vi_map.db, the richer SQLite authoring format with the complete
// trajectory, landmark and observation history, from which a summary map is
// derived by keeping only well-constrained landmarks.
package vimap
