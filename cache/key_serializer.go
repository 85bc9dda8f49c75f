package cache

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// KeySerializer builds storage keys for entities held in a named region.
// All keys of a region share RegionPrefix(region) so a region can be
// dropped with a single prefix delete.
type KeySerializer interface {
	SerializeKey(region, key string) string
	RegionPrefix(region string) string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins region and key with KeySeparator. Region names are
// identifiers and never contain the separator, so the first separator in a
// storage key always ends the region segment even if the entity key
// contains one.
func (defaultKeySerializer) SerializeKey(region, key string) string {
	return region + KeySeparator + key
}

func (defaultKeySerializer) RegionPrefix(region string) string {
	return region + KeySeparator
}
