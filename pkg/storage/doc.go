// Package storage writes crawl output to disk.
//
// Records are appended, one raw JSON post per line, to
// <output>/<YYYYMMDD>/<name>, where name is the user id or the search
// target's output file name. Appends to the same file are serialized.
//
// WriteAtomic is the write-temp, fsync, rename helper used for every file
// that must never be observed half written, such as progress files.
//
// Usage:
//
//	manager, err := storage.NewManager("./data")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = manager.AppendRecords(time.Now(), "12345", records)
package storage
