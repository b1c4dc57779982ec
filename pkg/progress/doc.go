// Package progress persists per-target crawl state.
//
// The progress file is a JSON object keyed by target id (users.json for
// timeline crawls, search.json for searches). Each commit clamps the
// since_id watermark so it never regresses, keeps removed targets removed,
// and atomically rewrites both the progress file and a dated snapshot
// under <output>/<YYYYMMDD>/. A restarted crawl therefore resumes from the
// last committed watermark of every target.
//
// RedisMirror optionally copies each committed target into a Redis hash.
// Mirror failures are logged and never fail a commit.
package progress
