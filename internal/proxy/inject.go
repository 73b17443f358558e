package proxy

import (
	"bytes"
	"fmt"
)

// devSnippet loads the widget as a module straight from the asset dev
// server; bundledSnippet references the copies served under the proxy's
// own namespace.
const (
	devSnippet = `<script type="module" src="http://localhost:%d/gekto.js"></script>`

	bundledSnippet = `<link rel="stylesheet" href="/__gekto/gekto.css">` +
		`<script src="/__gekto/gekto.js"></script>`
)

func snippet(dev bool, assetPort int) []byte {
	if dev {
		return []byte(fmt.Sprintf(devSnippet, assetPort))
	}
	return []byte(bundledSnippet)
}

var (
	closeBody = []byte("</body>")
	closeHTML = []byte("</html>")
)

// injectHTML inserts markup into an HTML document: immediately before
// </body>, else before </html>, else appended at the end. Tag matching
// is case-insensitive; the original document's casing is preserved.
func injectHTML(body, markup []byte) []byte {
	lower := bytes.ToLower(body)

	idx := bytes.LastIndex(lower, closeBody)
	if idx < 0 {
		idx = bytes.LastIndex(lower, closeHTML)
	}
	if idx < 0 {
		return append(body, markup...)
	}

	out := make([]byte, 0, len(body)+len(markup))
	out = append(out, body[:idx]...)
	out = append(out, markup...)
	out = append(out, body[idx:]...)
	return out
}
