package cache

import (
	"strings"
	"testing"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestDefaultKeySerializer_SerializeKey(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name   string
		region string
		key    string
		want   string
	}{
		{
			name:   "natural key",
			region: "employee",
			key:    "John Smith",
			want:   joinWithSeparator("employee", "John Smith"),
		},
		{
			name:   "generated key",
			region: "test_entity",
			key:    "42",
			want:   joinWithSeparator("test_entity", "42"),
		},
		{
			name:   "key containing separator",
			region: "employee",
			key:    "a::b",
			want:   "employee::a::b",
		},
		{
			name:   "empty key",
			region: "employee",
			key:    "",
			want:   "employee::",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.region, tt.key)
			if got != tt.want {
				t.Errorf("SerializeKey(%q, %q) = %q, want %q", tt.region, tt.key, got, tt.want)
			}
			if !strings.HasPrefix(got, serializer.RegionPrefix(tt.region)) {
				t.Errorf("key %q does not start with region prefix", got)
			}
		})
	}
}

func TestRegionPrefixesDoNotOverlap(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	key := serializer.SerializeKey("employee_archive", "x")
	if strings.HasPrefix(key, serializer.RegionPrefix("employee")) {
		t.Errorf("region employee must not claim %q", key)
	}
}
