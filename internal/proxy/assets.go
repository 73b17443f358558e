package proxy

import (
	"embed"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"time"
)

//go:embed assets
var bundled embed.FS

var assetTypes = map[string]string{
	"gekto.js":  "application/javascript; charset=utf-8",
	"gekto.css": "text/css; charset=utf-8",
}

// AssetHandler serves the widget bundle. In dev mode each request is
// forwarded to the asset dev server first so edits show up without a
// rebuild; if that server is unreachable the bundled copy answers
// instead.
func AssetHandler(dev bool, assetPort int) http.Handler {
	client := &http.Client{Timeout: 3 * time.Second}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		ctype, ok := assetTypes[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		if dev {
			resp, err := client.Get(fmt.Sprintf("http://localhost:%d/%s", assetPort, name))
			if err == nil {
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					w.Header().Set("Content-Type", ctype)
					io.Copy(w, resp.Body)
					return
				}
			} else {
				log.Printf("proxy: asset server unreachable, serving bundled %s: %v", name, err)
			}
		}

		data, err := bundled.ReadFile("assets/" + name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", ctype)
		w.Write(data)
	})
}
