// Package restful builds JSON REST services on gin from small parts: a
// Model interface over storage, generic handlers for the five standard
// verbs, a parameter resolver for query and body values, and a typed
// error escape hatch that turns returned or panicked errors into
// structured responses at a single boundary middleware.
//
// The quickest way in is an App, which wires the middleware chain and
// command line configuration, and a store implementing Model:
//
//	func main() {
//		app := restful.NewApp("Notes API", "1.0.0")
//
//		notes := memstore.New()
//		app.Resource("/notes", notes,
//			restful.WithFields(restful.Fields{
//				"title": {Required: true},
//				"body":  {Default: ""},
//			}),
//			restful.WithUniqueBy("title"),
//			restful.WithFilter(),
//		)
//
//		app.Run()
//	}
//
// Handlers written by hand return errors instead of writing error
// responses themselves. Anything satisfying StatusError, whether
// returned or panicked from deeper layers, is rendered as
// `{"msg": "..."}` with its status code; any other error becomes a
// logged 500 without leaking its message:
//
//	app.Engine().GET("/reports/:id", restful.H(func(c *gin.Context) error {
//		report, err := load(c.Param("id"))
//		if err != nil {
//			return err
//		}
//		if report == nil {
//			return restful.Error404NotFound("resource not found")
//		}
//		restful.Respond(c, http.StatusOK, report)
//		return nil
//	}))
//
// Responses negotiate their encoding from the Accept header between
// JSON, CBOR, and YAML, defaulting to JSON.
package restful
