// Package wampmsg models the WAMP message taxonomy as a tagged sum: one Go
// struct per message type, each carrying exactly the fields that type's
// wire array defines. Decoding is a single switch on the leading type code
// (FromArray, shared by every codec in internal/serializer), never a
// runtime class check on a decoded generic value.
//
// Every message implements Message, which exposes only the numeric type
// code and the array form a serializer encodes/decodes. Field access is
// through the concrete struct; callers type-switch on the Message a
// serializer or session hands back.
package wampmsg

// Type identifies one of the 24 WAMP message types this runtime speaks. The
// numeric values are the ones the WAMP v2 wire protocol assigns; they are
// not ours to choose.
type Type int

const (
	TypeHello        Type = 1
	TypeWelcome      Type = 2
	TypeAbort        Type = 3
	TypeChallenge    Type = 4
	TypeAuthenticate Type = 5
	TypeGoodbye      Type = 6
	TypeError        Type = 8
	TypePublish      Type = 16
	TypePublished    Type = 17
	TypeSubscribe    Type = 32
	TypeSubscribed   Type = 33
	TypeUnsubscribe  Type = 34
	TypeUnsubscribed Type = 35
	TypeEvent        Type = 36
	TypeCall         Type = 48
	TypeCancel       Type = 49
	TypeResult       Type = 50
	TypeRegister     Type = 64
	TypeRegistered   Type = 65
	TypeUnregister   Type = 66
	TypeUnregistered Type = 67
	TypeInvocation   Type = 68
	TypeInterrupt    Type = 69
	TypeYield        Type = 70
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeWelcome:
		return "WELCOME"
	case TypeAbort:
		return "ABORT"
	case TypeChallenge:
		return "CHALLENGE"
	case TypeAuthenticate:
		return "AUTHENTICATE"
	case TypeGoodbye:
		return "GOODBYE"
	case TypeError:
		return "ERROR"
	case TypePublish:
		return "PUBLISH"
	case TypePublished:
		return "PUBLISHED"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubscribed:
		return "SUBSCRIBED"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsubscribed:
		return "UNSUBSCRIBED"
	case TypeEvent:
		return "EVENT"
	case TypeCall:
		return "CALL"
	case TypeCancel:
		return "CANCEL"
	case TypeResult:
		return "RESULT"
	case TypeRegister:
		return "REGISTER"
	case TypeRegistered:
		return "REGISTERED"
	case TypeUnregister:
		return "UNREGISTER"
	case TypeUnregistered:
		return "UNREGISTERED"
	case TypeInvocation:
		return "INVOCATION"
	case TypeInterrupt:
		return "INTERRUPT"
	case TypeYield:
		return "YIELD"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by every concrete message struct in this package.
// ToArray produces the wire array form (leading type code plus fields, in
// wire order); a serializer hands the result to its codec as-is.
type Message interface {
	Type() Type
	ToArray() []interface{}
}

// Details, Options, Kwargs are all WAMP "dict" positions on the wire; they
// carry no fixed schema so every message represents them as
// map[string]interface{}. Args is a WAMP "list" position.

type Hello struct {
	Realm   string
	Details map[string]interface{}
}

func (m *Hello) Type() Type               { return TypeHello }
func (m *Hello) ToArray() []interface{}   { return []interface{}{int(TypeHello), m.Realm, m.Details} }

type Welcome struct {
	Session uint64
	Details map[string]interface{}
}

func (m *Welcome) Type() Type             { return TypeWelcome }
func (m *Welcome) ToArray() []interface{} { return []interface{}{int(TypeWelcome), m.Session, m.Details} }

// Abort terminates a handshake that never reached WELCOME. Reason is a WAMP
// error URI explaining why (e.g. "wamp.error.not_authorized").
type Abort struct {
	Details map[string]interface{}
	Reason  string
}

func (m *Abort) Type() Type             { return TypeAbort }
func (m *Abort) ToArray() []interface{} { return []interface{}{int(TypeAbort), m.Details, m.Reason} }

type Challenge struct {
	AuthMethod string
	Extra      map[string]interface{}
}

func (m *Challenge) Type() Type { return TypeChallenge }
func (m *Challenge) ToArray() []interface{} {
	return []interface{}{int(TypeChallenge), m.AuthMethod, m.Extra}
}

type Authenticate struct {
	Signature string
	Extra     map[string]interface{}
}

func (m *Authenticate) Type() Type { return TypeAuthenticate }
func (m *Authenticate) ToArray() []interface{} {
	return []interface{}{int(TypeAuthenticate), m.Signature, m.Extra}
}

type Goodbye struct {
	Details map[string]interface{}
	Reason  string
}

func (m *Goodbye) Type() Type { return TypeGoodbye }
func (m *Goodbye) ToArray() []interface{} {
	return []interface{}{int(TypeGoodbye), m.Details, m.Reason}
}

// Error carries RequestType so the receiver knows which pending table to
// look the RequestID up in: request IDs are scoped per role (call,
// register, subscribe, ...), not globally unique across all of them.
type Error struct {
	RequestType Type
	RequestID   uint64
	Details     map[string]interface{}
	URI         string
	Args        []interface{}
	Kwargs      map[string]interface{}
}

func (m *Error) Type() Type { return TypeError }
func (m *Error) ToArray() []interface{} {
	return []interface{}{int(TypeError), int(m.RequestType), m.RequestID, m.Details, m.URI, m.Args, m.Kwargs}
}

type Publish struct {
	RequestID uint64
	Options   map[string]interface{}
	Topic     string
	Args      []interface{}
	Kwargs    map[string]interface{}
}

func (m *Publish) Type() Type { return TypePublish }
func (m *Publish) ToArray() []interface{} {
	return []interface{}{int(TypePublish), m.RequestID, m.Options, m.Topic, m.Args, m.Kwargs}
}

type Published struct {
	RequestID     uint64
	PublicationID uint64
}

func (m *Published) Type() Type { return TypePublished }
func (m *Published) ToArray() []interface{} {
	return []interface{}{int(TypePublished), m.RequestID, m.PublicationID}
}

type Subscribe struct {
	RequestID uint64
	Options   map[string]interface{}
	Topic     string
}

func (m *Subscribe) Type() Type { return TypeSubscribe }
func (m *Subscribe) ToArray() []interface{} {
	return []interface{}{int(TypeSubscribe), m.RequestID, m.Options, m.Topic}
}

type Subscribed struct {
	RequestID      uint64
	SubscriptionID uint64
}

func (m *Subscribed) Type() Type { return TypeSubscribed }
func (m *Subscribed) ToArray() []interface{} {
	return []interface{}{int(TypeSubscribed), m.RequestID, m.SubscriptionID}
}

type Unsubscribe struct {
	RequestID      uint64
	SubscriptionID uint64
}

func (m *Unsubscribe) Type() Type { return TypeUnsubscribe }
func (m *Unsubscribe) ToArray() []interface{} {
	return []interface{}{int(TypeUnsubscribe), m.RequestID, m.SubscriptionID}
}

type Unsubscribed struct {
	RequestID uint64
}

func (m *Unsubscribed) Type() Type { return TypeUnsubscribed }
func (m *Unsubscribed) ToArray() []interface{} {
	return []interface{}{int(TypeUnsubscribed), m.RequestID}
}

type Event struct {
	SubscriptionID uint64
	PublicationID  uint64
	Details        map[string]interface{}
	Args           []interface{}
	Kwargs         map[string]interface{}
}

func (m *Event) Type() Type { return TypeEvent }
func (m *Event) ToArray() []interface{} {
	return []interface{}{int(TypeEvent), m.SubscriptionID, m.PublicationID, m.Details, m.Args, m.Kwargs}
}

type Call struct {
	RequestID uint64
	Options   map[string]interface{}
	Procedure string
	Args      []interface{}
	Kwargs    map[string]interface{}
}

func (m *Call) Type() Type { return TypeCall }
func (m *Call) ToArray() []interface{} {
	return []interface{}{int(TypeCall), m.RequestID, m.Options, m.Procedure, m.Args, m.Kwargs}
}

// CancelMode selects how aggressively a CANCEL tears down its invocation.
// Carried in Options["mode"] on the wire, as the Advanced Profile defines,
// rather than as a distinct field.
type CancelMode string

const (
	CancelSkip       CancelMode = "skip"
	CancelKill       CancelMode = "kill"
	CancelKillNoWait CancelMode = "killnowait"
)

type Cancel struct {
	RequestID uint64
	Options   map[string]interface{}
}

func (m *Cancel) Type() Type { return TypeCancel }
func (m *Cancel) ToArray() []interface{} {
	return []interface{}{int(TypeCancel), m.RequestID, m.Options}
}

type Result struct {
	RequestID uint64
	Details   map[string]interface{}
	Args      []interface{}
	Kwargs    map[string]interface{}
}

func (m *Result) Type() Type { return TypeResult }
func (m *Result) ToArray() []interface{} {
	return []interface{}{int(TypeResult), m.RequestID, m.Details, m.Args, m.Kwargs}
}

type Register struct {
	RequestID uint64
	Options   map[string]interface{}
	Procedure string
}

func (m *Register) Type() Type { return TypeRegister }
func (m *Register) ToArray() []interface{} {
	return []interface{}{int(TypeRegister), m.RequestID, m.Options, m.Procedure}
}

type Registered struct {
	RequestID      uint64
	RegistrationID uint64
}

func (m *Registered) Type() Type { return TypeRegistered }
func (m *Registered) ToArray() []interface{} {
	return []interface{}{int(TypeRegistered), m.RequestID, m.RegistrationID}
}

type Unregister struct {
	RequestID      uint64
	RegistrationID uint64
}

func (m *Unregister) Type() Type { return TypeUnregister }
func (m *Unregister) ToArray() []interface{} {
	return []interface{}{int(TypeUnregister), m.RequestID, m.RegistrationID}
}

type Unregistered struct {
	RequestID uint64
}

func (m *Unregistered) Type() Type { return TypeUnregistered }
func (m *Unregistered) ToArray() []interface{} {
	return []interface{}{int(TypeUnregistered), m.RequestID}
}

// Invocation is Dealer-originated; RequestID here is the dealer's own
// per-invocation ID, distinct from the caller's CALL request ID.
type Invocation struct {
	RequestID      uint64
	RegistrationID uint64
	Details        map[string]interface{}
	Args           []interface{}
	Kwargs         map[string]interface{}
}

func (m *Invocation) Type() Type { return TypeInvocation }
func (m *Invocation) ToArray() []interface{} {
	return []interface{}{int(TypeInvocation), m.RequestID, m.RegistrationID, m.Details, m.Args, m.Kwargs}
}

type Interrupt struct {
	RequestID uint64
	Options   map[string]interface{}
}

func (m *Interrupt) Type() Type { return TypeInterrupt }
func (m *Interrupt) ToArray() []interface{} {
	return []interface{}{int(TypeInterrupt), m.RequestID, m.Options}
}

type Yield struct {
	RequestID uint64
	Options   map[string]interface{}
	Args      []interface{}
	Kwargs    map[string]interface{}
}

func (m *Yield) Type() Type { return TypeYield }
func (m *Yield) ToArray() []interface{} {
	return []interface{}{int(TypeYield), m.RequestID, m.Options, m.Args, m.Kwargs}
}

// Progress reports whether a YIELD's Options or a RESULT's Details mark it
// as a progressive (non-terminal) delivery, per the Advanced Profile's
// Progressive Call Results feature.
func Progress(details map[string]interface{}) bool {
	if details == nil {
		return false
	}
	p, _ := details["progress"].(bool)
	return p
}
