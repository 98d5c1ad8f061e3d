package core

import (
	"sort"
	"sync"

	"pinguino/protocol"
	"pinguino/tinycompress"
)

// Dictionary is the zlib compressed JSON document a host reads through
// identify to learn message ids and firmware constants.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]string
	reg           *CommandRegistry
	version       string
	buildVersions string
	cached        []byte
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]string),
		reg:           reg,
		version:       "pinguino-" + protocol.Version,
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value uint32) {
	globalDictionary.AddConstant(name, utoa(value))
}

// RegisterStringConstant adds a string constant to the global dictionary
func RegisterStringConstant(name, value string) {
	globalDictionary.AddConstant(name, value)
}

// AddConstant adds or replaces a constant and drops the cached document
func (d *Dictionary) AddConstant(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.cached = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
}

// Build renders and compresses the document. Call it after every command
// and constant is registered so identify never pays for it.
func (d *Dictionary) Build() []byte {
	// Read the registry before taking our lock to keep lock order one way
	commands, responses := d.reg.Split()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = tinycompress.Compress(d.renderLocked(commands, responses))
		DebugPrintln("[DICT] built " + itoa(len(d.cached)) + " bytes")
	}
	return d.cached
}

// JSON returns the uncompressed document
func (d *Dictionary) JSON() []byte {
	commands, responses := d.reg.Split()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.renderLocked(commands, responses)
}

func (d *Dictionary) renderLocked(commands, responses []*Command) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = appendQuoted(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, d.constants[name])
	}

	out = append(out, `},"commands":`...)
	out = appendIDMap(out, commands)
	out = append(out, `,"responses":`...)
	out = appendIDMap(out, responses)
	return append(out, '}')
}

func appendIDMap(out []byte, cmds []*Command) []byte {
	out = append(out, '{')
	for i, c := range cmds {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, c.Line())
		out = append(out, ':')
		out = append(out, utoa(uint32(c.ID))...)
	}
	return append(out, '}')
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return append(out, '"')
}

// GetChunk returns a copy of up to count bytes of the compressed document
// starting at offset. Past the end it returns an empty chunk, which ends
// the host's identify loop.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Build()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the dictionary served by identify
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
