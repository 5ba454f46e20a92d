package submission

// MaxImages caps the number of attachments on one request.
const MaxImages = 4

// Image is one attached photo.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageSet is the ordered attachment list of a draft. When an addition would
// exceed MaxImages the oldest attachments are dropped first.
type ImageSet struct {
	images []Image
}

// Add appends images and truncates from the front to the cap.
func (s *ImageSet) Add(images ...Image) {
	merged := append(s.images, images...)
	if over := len(merged) - MaxImages; over > 0 {
		merged = merged[over:]
	}
	s.images = append([]Image(nil), merged...)
}

// Len returns the number of attached images.
func (s *ImageSet) Len() int {
	return len(s.images)
}

// Images returns a copy of the attachments in order.
func (s *ImageSet) Images() []Image {
	return append([]Image(nil), s.images...)
}

// Clear removes all attachments.
func (s *ImageSet) Clear() {
	s.images = nil
}
