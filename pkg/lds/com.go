package lds

import (
	"fmt"

	"github.com/qudamyker/eidreader/pkg/tlv"
)

// COMFile is the EF.COM common data element: version information and the
// list of data groups the chip carries.
type COMFile struct {
	LDSVersion     string // e.g. "0107"
	UnicodeVersion string // e.g. "040000"
	DataGroups     []int  // data group numbers, in tag list order
}

// Has reports whether the directory lists data group n.
func (c *COMFile) Has(n int) bool {
	for _, dg := range c.DataGroups {
		if dg == n {
			return true
		}
	}
	return false
}

// ParseCOM decodes the EF.COM file contents (outer tag 60).
func ParseCOM(data []byte) (*COMFile, error) {
	body, err := tlv.GetValue(data, 0x60)
	if err != nil {
		return nil, fmt.Errorf("lds: EF.COM: %w", err)
	}

	var raw struct {
		LDSVersion     []byte `tlv:"5F01"`
		UnicodeVersion []byte `tlv:"5F36"`
		TagList        []byte `tlv:"5C"`
	}
	if err := tlv.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("lds: EF.COM: %w", err)
	}

	com := &COMFile{
		LDSVersion:     string(raw.LDSVersion),
		UnicodeVersion: string(raw.UnicodeVersion),
	}
	for _, tag := range raw.TagList {
		n, ok := DataGroupForTag(tag)
		if !ok {
			return nil, fmt.Errorf("lds: EF.COM lists unknown data group tag 0x%02X", tag)
		}
		com.DataGroups = append(com.DataGroups, n)
	}
	return com, nil
}
