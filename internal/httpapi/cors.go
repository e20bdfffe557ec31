package httpapi

import "net/http"

// withCORS mirrors the original's aiohttp_cors configuration: all origins,
// all methods, all headers, credentials allowed. No CORS-capable middleware
// exists in the retrieved dependency pack without dragging in the gin
// framework wholesale (see DESIGN.md), so this is hand-rolled.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
