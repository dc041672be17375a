// Package urlfile treats a remote HTTP resource as a local file.
//
// A [Stream] is bound to one URL and one [Mode] (read, write or append,
// each in a text or binary variant) and supports the usual read, write
// and seek contract against a local buffer. The network is touched as
// little as possible: read modes fetch the whole body at most once, on
// first read; write and append modes commit the buffered content back as
// a single POST when the Stream is closed. The buffer lives in memory and
// transparently spills to disk past a size threshold.
//
// # Quick Start
//
//	s, err := urlfile.Open(ctx, "https://example.com/data.csv", urlfile.ReadText)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	data, err := io.ReadAll(s)
//
// # Writing
//
// Written content reaches the remote side only when Close commits it, so
// pair a deferred Discard with an explicit Close to avoid uploading
// half-written content on an error path:
//
//	s, err := urlfile.Open(ctx, url, urlfile.WriteBinary)
//	if err != nil {
//	    return err
//	}
//	defer s.Discard()
//	if _, err := s.Write(payload); err != nil {
//	    return err
//	}
//	return s.Close()
//
// # Iteration
//
// [Stream.Chunks] and [Stream.Lines] stream the body chunk by chunk
// without buffering it, each pass over its own GET:
//
//	for line, err := range s.Lines(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(line)
//	}
//
// # Object Storage
//
// The store subpackage defines a bucket/key storage interface with
// pluggable drivers (local, s3, rclone), and the resource subpackage
// builds lazy object handles and upload helpers on top of it.
package urlfile
