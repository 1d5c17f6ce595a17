package fs

import (
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// Application describes a card application reachable by SELECT by DF name.
// Its data-object collections are consulted by commands that carry
// application specific payloads (GET DATA, STORE DATA).
type Application struct {
	Name string
	AID  []byte

	// FCI decodes the SELECT response when the application does not
	// answer with a plain ISO FCP template.
	FCI *tlv.Collection

	GetDataCommand    *tlv.Collection
	GetDataResponse   *tlv.Collection
	StoreData         *tlv.Collection
	StoreDataResponse *tlv.Collection

	// StatusWords overrides the generic descriptions of ISO/IEC 7816-4.
	StatusWords map[uint16]string

	// Files lists the children of the ADF.
	Files []*File
}

// DescribeStatus returns the application specific text for sw, if any.
func (a *Application) DescribeStatus(sw uint16) (string, bool) {
	if a == nil || a.StatusWords == nil {
		return "", false
	}
	s, ok := a.StatusWords[sw]
	return s, ok
}

// ADF declares the application DF of app.
func ADF(app *Application) *File {
	return &File{
		FID:      FIDCurrentADF,
		AID:      app.AID,
		Name:     app.Name,
		Type:     TypeADF,
		App:      app,
		children: app.Files,
	}
}
