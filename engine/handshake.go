package engine

import "strconv"

// HandshakeDescription identifies a handshake message as reported to the
// inspection hook. Values follow the TLS wire encoding; ChangeCipherSpec gets
// an out-of-band value since it is not a handshake message on the wire.
type HandshakeDescription uint

const (
	HandshakeHelloRequest        HandshakeDescription = 0
	HandshakeClientHello         HandshakeDescription = 1
	HandshakeServerHello         HandshakeDescription = 2
	HandshakeHelloVerifyRequest  HandshakeDescription = 3
	HandshakeNewSessionTicket    HandshakeDescription = 4
	HandshakeEndOfEarlyData      HandshakeDescription = 5
	HandshakeEncryptedExtensions HandshakeDescription = 8
	HandshakeCertificate         HandshakeDescription = 11
	HandshakeServerKeyExchange   HandshakeDescription = 12
	HandshakeCertificateRequest  HandshakeDescription = 13
	HandshakeServerHelloDone     HandshakeDescription = 14
	HandshakeCertificateVerify   HandshakeDescription = 15
	HandshakeClientKeyExchange   HandshakeDescription = 16
	HandshakeFinished            HandshakeDescription = 20
	HandshakeKeyUpdate           HandshakeDescription = 24
	HandshakeChangeCipherSpec    HandshakeDescription = 254
)

var handshakeNames = map[HandshakeDescription]string{
	HandshakeHelloRequest:        "HelloRequest",
	HandshakeClientHello:         "ClientHello",
	HandshakeServerHello:         "ServerHello",
	HandshakeHelloVerifyRequest:  "HelloVerifyRequest",
	HandshakeNewSessionTicket:    "NewSessionTicket",
	HandshakeEndOfEarlyData:      "EndOfEarlyData",
	HandshakeEncryptedExtensions: "EncryptedExtensions",
	HandshakeCertificate:         "Certificate",
	HandshakeServerKeyExchange:   "ServerKeyExchange",
	HandshakeCertificateRequest:  "CertificateRequest",
	HandshakeServerHelloDone:     "ServerHelloDone",
	HandshakeCertificateVerify:   "CertificateVerify",
	HandshakeClientKeyExchange:   "ClientKeyExchange",
	HandshakeFinished:            "Finished",
	HandshakeKeyUpdate:           "KeyUpdate",
	HandshakeChangeCipherSpec:    "ChangeCipherSpec",
}

func (h HandshakeDescription) String() string {
	if name, ok := handshakeNames[h]; ok {
		return name
	}
	return "unknown message (" + strconv.Itoa(int(h)) + ")"
}
