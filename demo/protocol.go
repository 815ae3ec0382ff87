package demo

import "fmt"

// Every demo starts with an 8 byte magic followed by two 32 bit offsets the
// decoder does not need.
const preambleSize = 16

var demoMagic = [8]byte{'P', 'B', 'D', 'E', 'M', 'S', '2', 0}

// HasMagic reports whether b starts with the magic of a Source 2 demo.
func HasMagic(b []byte) bool {
	return len(b) >= len(demoMagic) && [8]byte(b[:8]) == demoMagic
}

// Command is the type of an outer frame.
type Command uint32

const (
	CmdStop                Command = 0
	CmdFileHeader          Command = 1
	CmdFileInfo            Command = 2
	CmdSyncTick            Command = 3
	CmdSendTables          Command = 4
	CmdClassInfo           Command = 5
	CmdStringTables        Command = 6
	CmdPacket              Command = 7
	CmdSignonPacket        Command = 8
	CmdConsoleCmd          Command = 9
	CmdCustomData          Command = 10
	CmdCustomDataCallbacks Command = 11
	CmdUserCmd             Command = 12
	CmdFullPacket          Command = 13
	CmdSaveGame            Command = 14
	CmdSpawnGroups         Command = 15
	CmdAnimationData       Command = 16

	// set on the command of a snappy compressed frame
	cmdCompressed Command = 64
)

var commandNames = map[Command]string{
	CmdStop:                "stop",
	CmdFileHeader:          "file_header",
	CmdFileInfo:            "file_info",
	CmdSyncTick:            "sync_tick",
	CmdSendTables:          "send_tables",
	CmdClassInfo:           "class_info",
	CmdStringTables:        "string_tables",
	CmdPacket:              "packet",
	CmdSignonPacket:        "signon_packet",
	CmdConsoleCmd:          "console_cmd",
	CmdCustomData:          "custom_data",
	CmdCustomDataCallbacks: "custom_data_callbacks",
	CmdUserCmd:             "user_cmd",
	CmdFullPacket:          "full_packet",
	CmdSaveGame:            "save_game",
	CmdSpawnGroups:         "spawn_groups",
	CmdAnimationData:       "animation_data",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", uint32(c))
}

// MessageType is the type of a message inside a packet frame.
type MessageType uint32

const (
	MsgSetConVar         MessageType = 6
	MsgServerInfo        MessageType = 40
	MsgCreateStringTable MessageType = 44
	MsgUpdateStringTable MessageType = 45
	MsgPacketEntities    MessageType = 55
	MsgGameEventList     MessageType = 205
	MsgGameEvent         MessageType = 207
)

var messageNames = map[MessageType]string{
	MsgSetConVar:         "set_con_var",
	MsgServerInfo:        "server_info",
	MsgCreateStringTable: "create_string_table",
	MsgUpdateStringTable: "update_string_table",
	MsgPacketEntities:    "packet_entities",
	MsgGameEventList:     "game_event_list",
	MsgGameEvent:         "game_event",
}

func (t MessageType) String() string {
	if s, ok := messageNames[t]; ok {
		return s
	}
	return fmt.Sprintf("message(%d)", uint32(t))
}

// field numbers of the messages the driver reads
const (
	fileHeaderNetworkProtocol = 2
	fileHeaderServerName      = 3
	fileHeaderClientName      = 4
	fileHeaderMapName         = 5
	fileHeaderGameDirectory   = 6
	fileHeaderDemoVersionName = 11
	fileHeaderBuildNum        = 13

	fileInfoPlaybackTime  = 1
	fileInfoPlaybackTicks = 2

	sendTablesData = 1
	packetData     = 3

	serverInfoMaxClasses   = 11
	serverInfoTickInterval = 13
	serverInfoMapName      = 15

	packetEntitiesUpdated = 2
	packetEntitiesData    = 7

	setConVarConVars = 1
	conVarsCVars     = 1
	conVarName       = 1
	conVarValue      = 2

	eventListDescriptors = 1
	descriptorID         = 1
	descriptorName       = 2
	descriptorKeys       = 3
	keyType              = 1
	keyName              = 2

	eventName = 1
	eventID   = 2
	eventKeys = 3
)
