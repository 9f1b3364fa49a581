package ospf2

import "strconv"

func (t LSType) String() string {
	switch t {
	case RouterLSA:
		return "RouterLSA"
	case NetworkLSA:
		return "NetworkLSA"
	case SummaryLSA:
		return "SummaryLSA"
	case ASBRSummaryLSA:
		return "ASBRSummaryLSA"
	case ASExternalLSA:
		return "ASExternalLSA"
	case GroupMembershipLSA:
		return "GroupMembershipLSA"
	case LinkOpaqueLSA:
		return "LinkOpaqueLSA"
	case AreaOpaqueLSA:
		return "AreaOpaqueLSA"
	case ASOpaqueLSA:
		return "ASOpaqueLSA"
	default:
		return "LSType(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

func (t RouterLinkType) String() string {
	switch t {
	case PointToPointLink:
		return "PointToPoint"
	case TransitNetLink:
		return "TransitNetwork"
	case StubNetLink:
		return "StubNetwork"
	case VirtualLink:
		return "VirtualLink"
	default:
		return "RouterLinkType(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

func (t packetType) String() string {
	switch t {
	case hello:
		return "Hello"
	case databaseDescription:
		return "DatabaseDescription"
	case linkStateRequest:
		return "LinkStateRequest"
	case linkStateUpdate:
		return "LinkStateUpdate"
	case linkStateAcknowledgement:
		return "LinkStateAcknowledgement"
	default:
		return "packetType(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

func (a AuType) String() string {
	switch a {
	case AuNone:
		return "None"
	case AuCleartext:
		return "Cleartext"
	case AuMD5:
		return "MD5"
	default:
		return "AuType(" + strconv.FormatUint(uint64(a), 10) + ")"
	}
}
