package submission

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// ImagesField is the part name shared by all image attachments.
const ImagesField = "images"

// Field is one named scalar part of the payload.
type Field struct {
	Name  string
	Value string
}

// Payload is the multipart body of POST /api/posts. Fields keep the order in
// which they were added; booleans are the literal tokens "true"/"false".
type Payload struct {
	Fields []Field
	Images []Image
}

func (p *Payload) add(name, value string) {
	p.Fields = append(p.Fields, Field{Name: name, Value: value})
}

func (p *Payload) addOptional(name, value string) {
	if strings.TrimSpace(value) != "" {
		p.add(name, value)
	}
}

// Get returns the value of a scalar field and whether it is present.
func (p *Payload) Get(name string) (string, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Encode writes the multipart body and returns its content type.
func (p *Payload) Encode(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)
	for _, f := range p.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", f.Name, err)
		}
	}
	for i, img := range p.Images {
		part, err := mw.CreatePart(imageHeader(i, img))
		if err != nil {
			return "", fmt.Errorf("failed to create image part %d: %w", i, err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return "", fmt.Errorf("failed to write image part %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return mw.FormDataContentType(), nil
}

// Body encodes the payload into memory.
func (p *Payload) Body() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	contentType, err := p.Encode(&buf)
	if err != nil {
		return nil, "", err
	}
	return &buf, contentType, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func imageHeader(i int, img Image) textproto.MIMEHeader {
	filename := img.Filename
	if filename == "" {
		filename = fmt.Sprintf("image-%d.jpg", i+1)
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, ImagesField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}
