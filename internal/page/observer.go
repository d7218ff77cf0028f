package page

import (
	_ "embed"
	"net/http"
)

// ObserverScript is the script a meeting tab runs to stream its caption
// region to the hub. It assigns each caption element a handle that stays
// fixed while the element lives and is never reused, which is what the
// tracker keys records on.
//
//go:embed observer.js
var ObserverScript []byte

func handleObserverScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(ObserverScript)
}
