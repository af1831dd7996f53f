package packet

// ProtocolVersion is announced in the init packet and checked in C_HELLO.
const ProtocolVersion uint16 = 1

// Client opcodes.
const (
	C_OPCODE_HELLO    byte = 0x01 // [version H]
	C_OPCODE_LOGIN    byte = 0x02 // [mode C][account S][secret S]
	C_OPCODE_QUIT     byte = 0x03
	C_OPCODE_CREATE   byte = 0x10
	C_OPCODE_TRANSFER byte = 0x11 // [to S][kitty Q]
	C_OPCODE_BREED    byte = 0x12 // [parent1 Q][parent2 Q]
	C_OPCODE_KITTY    byte = 0x20 // [kitty Q]
	C_OPCODE_OWNED    byte = 0x21 // [account S]? defaults to caller
	C_OPCODE_BALANCE  byte = 0x22 // [account S]? defaults to caller
)

// Server opcodes.
const (
	S_OPCODE_INITPACKET        byte = 0x80 // [version H][server name S]
	S_OPCODE_RESULT            byte = 0x81 // [request opcode C][code C][payload]
	S_OPCODE_KITTY_CREATED     byte = 0x82 // [kitty Q][owner S]
	S_OPCODE_KITTY_TRANSFERRED byte = 0x83 // [kitty Q][from S][to S]
)

// Login modes carried in C_LOGIN.
const (
	LoginPassword byte = 0
	LoginToken    byte = 1
)
