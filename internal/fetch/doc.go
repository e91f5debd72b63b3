// Package fetch resolves resource locators into open byte streams.
//
// Two strategies are provided:
//   - HTTPFetcher issues a single streaming GET and hands back the body.
//   - DriveFetcher performs the Google Drive large-file confirmation handshake
//     (download_warning cookie, confirm query parameter, Content-Disposition
//     filename detection) before handing back the body.
//
// Dispatcher inspects the host of each locator and routes it to one of the two.
// All three expose lazy sequences built on the iter package: a locator is only
// fetched when the consumer pulls the next element, and the first failure ends
// the sequence.
//
// # Ownership
//
// Every Result carries a StreamHandle wrapping exactly one response body. The
// handle belongs to the consumer from the moment it is yielded; this package
// never reads past the handshake probe and never closes a yielded handle.
//
// # Sessions
//
// Each Fetch call acquires its own http.Client with a fresh cookie jar and
// releases it before returning. The Drive handshake shares one session across
// both of its requests so cookies set by the warning page reach the confirmed
// download.
//
// # Usage
//
//	d := fetch.NewDispatcher(fetch.WithTimeout(30 * time.Second))
//	for res, err := range d.All(ctx, slices.Values(locators)) {
//	    if err != nil {
//	        return err
//	    }
//	    defer res.Stream.Close()
//	    // read res.Stream
//	}
package fetch
