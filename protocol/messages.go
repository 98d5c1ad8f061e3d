package protocol

import "strings"

// MessageFormat is one entry of the message table. The id of a message is
// its index in Messages; identify_response and identify must stay first so
// a host can bootstrap before it has read the dictionary.
type MessageFormat struct {
	Name   string
	Params string
}

// Messages is shared by the firmware registry and the host client
var Messages = []MessageFormat{
	{"identify_response", "offset=%u data=%*s"},
	{"identify", "offset=%u count=%c"},
	{"get_clock", ""},
	{"clock", "clock=%u"},
	{"servo_attach", "channel=%c"},
	{"servo_detach", "channel=%c"},
	{"servo_set_min", "channel=%c us=%hu"},
	{"servo_set_max", "channel=%c us=%hu"},
	{"servo_write", "channel=%c degrees=%hu"},
	{"servo_pulse", "channel=%c us=%hu"},
	{"servo_query", "channel=%c"},
	{"servo_state", "channel=%c valid=%c attached=%c degrees=%c pulse_us=%hu min_us=%hu max_us=%hu"},
	{"servo_fault", "channel=%c"},
	{"servo_config", "channels=%c mode=%c frame_us=%u"},
	{"get_servo_config", ""},
}

// MessageID returns the id of a named message
func MessageID(name string) (uint16, bool) {
	for i, m := range Messages {
		if m.Name == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// MustMessageID is MessageID for names known at compile time
func MustMessageID(name string) uint16 {
	id, ok := MessageID(name)
	if !ok {
		panic("unknown message " + name)
	}
	return id
}

// ParamNames returns the argument names of a message in wire order
func (m MessageFormat) ParamNames() []string {
	if m.Params == "" {
		return nil
	}
	fields := strings.Fields(m.Params)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if i := strings.IndexByte(f, '='); i > 0 {
			names = append(names, f[:i])
		}
	}
	return names
}

// String renders the dictionary line for the message
func (m MessageFormat) String() string {
	if m.Params == "" {
		return m.Name
	}
	return m.Name + " " + m.Params
}

// Dictionary is the text the firmware serves through identify
func Dictionary() string {
	var b strings.Builder
	b.WriteString("version " + Version + "\n")
	for _, m := range Messages {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}
