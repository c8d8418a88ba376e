package protocol

import "fmt"

// Token is a 16-bit command or response marker exchanged with the cartridge.
// Tokens travel most significant byte first.
type Token uint16

// Known tokens. Any other value identifies as TokenUnknown.
const (
	TokenUnknown            Token = 0x0000
	TokenPing               Token = 0x6455
	TokenLaunchFile         Token = 0x6444
	TokenPauseMusic         Token = 0x6466
	TokenPlaySubtune        Token = 0x6488
	TokenLegacySendFile     Token = 0x64AA
	TokenSendFile           Token = 0x64BB
	TokenAck                Token = 0x64CC
	TokenListDirectory      Token = 0x64DD
	TokenReset              Token = 0x64EE
	TokenCopyFile           Token = 0x64FF
	TokenStartDirectoryList Token = 0x5A5A
	TokenEndDirectoryList   Token = 0xA5A5
	TokenFail               Token = 0x9B7F
)

var tokenNames = map[Token]string{
	TokenPing:               "Ping",
	TokenLaunchFile:         "LaunchFile",
	TokenPauseMusic:         "PauseMusic",
	TokenPlaySubtune:        "PlaySubtune",
	TokenLegacySendFile:     "LegacySendFile",
	TokenSendFile:           "SendFile",
	TokenAck:                "Ack",
	TokenListDirectory:      "ListDirectory",
	TokenReset:              "Reset",
	TokenCopyFile:           "CopyFile",
	TokenStartDirectoryList: "StartDirectoryList",
	TokenEndDirectoryList:   "EndDirectoryList",
	TokenFail:               "Fail",
}

// Identify maps a raw wire value to its Token. Total: unrecognized values
// return TokenUnknown.
func Identify(v uint16) Token {
	if _, ok := tokenNames[Token(v)]; ok {
		return Token(v)
	}
	return TokenUnknown
}

// IdentifyBytes identifies the token in the first two bytes of b.
func IdentifyBytes(b []byte) Token {
	if len(b) < 2 {
		return TokenUnknown
	}
	return Identify(uint16(b[0])<<8 | uint16(b[1]))
}

// Wire returns the on-the-wire value.
func (t Token) Wire() uint16 { return uint16(t) }

// Bytes returns the two wire bytes, MSB first.
func (t Token) Bytes() []byte { return []byte{byte(t >> 8), byte(t)} }

func (t Token) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	if t == TokenUnknown {
		return "Unknown"
	}
	return fmt.Sprintf("Token(0x%04X)", uint16(t))
}

// Known returns every recognized token.
func Known() []Token {
	out := make([]Token, 0, len(tokenNames))
	for t := range tokenNames {
		out = append(out, t)
	}
	return out
}
