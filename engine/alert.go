package engine

import "strconv"

// Alert is a TLS alert description.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc8446#section-6
type Alert uint8

const (
	AlertCloseNotify            Alert = 0
	AlertUnexpectedMessage      Alert = 10
	AlertBadRecordMAC           Alert = 20
	AlertRecordOverflow         Alert = 22
	AlertDecompressionFailure   Alert = 30
	AlertHandshakeFailure       Alert = 40
	AlertBadCertificate         Alert = 42
	AlertUnsupportedCertificate Alert = 43
	AlertCertificateRevoked     Alert = 44
	AlertCertificateExpired     Alert = 45
	AlertCertificateUnknown     Alert = 46
	AlertIllegalParameter       Alert = 47
	AlertUnknownCA              Alert = 48
	AlertAccessDenied           Alert = 49
	AlertDecodeError            Alert = 50
	AlertDecryptError           Alert = 51
	AlertProtocolVersion        Alert = 70
	AlertInsufficientSecurity   Alert = 71
	AlertInternalError          Alert = 80
	AlertInappropriateFallback  Alert = 86
	AlertUserCanceled           Alert = 90
	AlertNoRenegotiation        Alert = 100
	AlertMissingExtension       Alert = 109
	AlertUnsupportedExtension   Alert = 110
	AlertUnrecognizedName       Alert = 112
	AlertUnknownPSKIdentity     Alert = 115
	AlertCertificateRequired    Alert = 116
	AlertNoApplicationProtocol  Alert = 120
)

var alertNames = map[Alert]string{
	AlertCloseNotify:            "close notify",
	AlertUnexpectedMessage:      "unexpected message",
	AlertBadRecordMAC:           "bad record MAC",
	AlertRecordOverflow:         "record overflow",
	AlertDecompressionFailure:   "decompression failure",
	AlertHandshakeFailure:       "handshake failure",
	AlertBadCertificate:         "bad certificate",
	AlertUnsupportedCertificate: "unsupported certificate",
	AlertCertificateRevoked:     "certificate revoked",
	AlertCertificateExpired:     "certificate expired",
	AlertCertificateUnknown:     "certificate unknown",
	AlertIllegalParameter:       "illegal parameter",
	AlertUnknownCA:              "unknown CA",
	AlertAccessDenied:           "access denied",
	AlertDecodeError:            "decode error",
	AlertDecryptError:           "decrypt error",
	AlertProtocolVersion:        "protocol version",
	AlertInsufficientSecurity:   "insufficient security",
	AlertInternalError:          "internal error",
	AlertInappropriateFallback:  "inappropriate fallback",
	AlertUserCanceled:           "user canceled",
	AlertNoRenegotiation:        "no renegotiation",
	AlertMissingExtension:       "missing extension",
	AlertUnsupportedExtension:   "unsupported extension",
	AlertUnrecognizedName:       "unrecognized name",
	AlertUnknownPSKIdentity:     "unknown PSK identity",
	AlertCertificateRequired:    "certificate required",
	AlertNoApplicationProtocol:  "no application protocol",
}

func (a Alert) String() string {
	if name, ok := alertNames[a]; ok {
		return name
	}
	return "unknown alert (" + strconv.Itoa(int(a)) + ")"
}
