package proxy

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// rebuildMultipart decomposes the request's multipart body and re-encodes it
// under a fresh boundary. Parts with a filename are treated as binary
// attachments and keep their declared content type; plain fields are copied
// as-is. The returned reader streams: a part is read from the caller only as
// fast as the upstream consumes it.
func rebuildMultipart(r *http.Request) (io.ReadCloser, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("read multipart body: %w", err)
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		err := copyParts(w, mr)
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	return pr, w.FormDataContentType(), nil
}

func copyParts(w *multipart.Writer, mr *multipart.Reader) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("next part: %w", err)
		}

		var dst io.Writer
		if filename := part.FileName(); filename != "" {
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name=%q; filename=%q`, part.FormName(), filename))
			contentType := part.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			header.Set("Content-Type", contentType)
			dst, err = w.CreatePart(header)
		} else {
			dst, err = w.CreateFormField(part.FormName())
		}
		if err != nil {
			part.Close()
			return fmt.Errorf("create part %q: %w", part.FormName(), err)
		}

		if _, err := io.Copy(dst, part); err != nil {
			part.Close()
			return fmt.Errorf("copy part %q: %w", part.FormName(), err)
		}
		part.Close()
	}
}
