// Package checkpoint saves the progress of a sync cycle so an interrupted
// cycle can be resumed.
//
// A checkpoint records the cycle ID and the account rows that finished (or
// failed) in it. On resume, finished rows are skipped and failed ones are
// tried again. A cycle that runs to the end deletes its checkpoint.
//
// Checkpoints are stored under sync.checkpoint_dir, or in the platform data
// directory when that is unset:
//   - Linux: ~/.local/share/igsync/checkpoints/
//   - macOS: ~/Library/Application Support/igsync/checkpoints/
//   - Windows: %APPDATA%/igsync/checkpoints/
//
// Files are written to a temporary path and renamed into place.
package checkpoint
