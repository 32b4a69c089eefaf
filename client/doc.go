// Package client provides a typed Go client for the REST API.
//
// Every API route has a matching method: key-value operations return the
// same typed values the embedded database works with, management
// operations return the component stat structs. Missing keys are
// reported through found flags, every other non-2xx response surfaces as
// an *APIError that the IsNotFound, IsConflict and IsBusy helpers
// classify.
//
// Usage Example:
//
//	c, err := client.New(client.Config{BaseURL: "http://localhost:8080"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := c.Set(ctx, "user:1", store.NewStringValue("alice"), time.Hour); err != nil {
//		log.Fatal(err)
//	}
//
//	value, found, err := c.Get(ctx, "user:1")
package client
