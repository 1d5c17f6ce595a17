package gp

import (
	"github.com/gregLibert/apdu-trace/pkg/fs"
	"github.com/gregLibert/apdu-trace/pkg/tlv"
)

// AIDISD is the default AID of the Issuer Security Domain.
var AIDISD = tlv.Hex("A000000003000000")

// ISD returns the Issuer Security Domain.
func ISD() *fs.Application {
	return SecurityDomain("ADF.ISD", AIDISD)
}

// SecurityDomain declares a security domain: its SELECT response is a GP
// FCI and GET DATA returns card management objects.
func SecurityDomain(name string, aid []byte) *fs.Application {
	return &fs.Application{
		Name:            name,
		AID:             aid,
		FCI:             FCI,
		GetDataResponse: DataCollection,
		StatusWords:     StatusWords,
	}
}
