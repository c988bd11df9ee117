// Package scroll streams every hit of a token-paginated search as one ordered
// sequence.
//
// A run fetches the first page, pipes its hits to the consumer as they are
// decoded, and schedules the next page as soon as the current page has shown
// both a hit and a continuation token. A page without hits ends the run. Pages
// are fetched strictly one after another and only when the consumer keeps
// reading, so memory use is bounded by a single hit regardless of the size of
// the result set.
//
// Example usage:
//
//	es, err := client.New(client.DefaultConfig("http://localhost:9200/logs"))
//	if err != nil {
//		return err
//	}
//
//	out := scroll.Start(ctx, es.Fetch, scroll.DefaultConfig())
//	defer out.Close()
//
//	for out.Next() {
//		fmt.Println(string(out.Hit()))
//	}
//	if err := out.Err(); err != nil {
//		// Hits read so far are an incomplete result set.
//		return err
//	}
//
// Errors:
//
//   - *TransportError: the factory could not fetch a page
//   - *response.StatusError: a page returned a status outside 2xx
//   - *response.ParseError: a page body was not valid JSON
//   - ErrMissingToken: a page had hits but no token (StrictContinuation only)
//
// The first error ends the run; Completed is then false.
package scroll
