package sensor

import "strconv"

// AppDeviceID identifies a device across applications.
type AppDeviceID struct {
	AppID string
	DevID string
}

func (id AppDeviceID) String() string {
	return id.AppID + "/" + id.DevID
}

// AttributeMap holds the registry attributes of a device.
type AttributeMap map[string]string

func (a AttributeMap) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// HasAll returns true when every key is present.
func (a AttributeMap) HasAll(keys ...string) bool {
	for _, k := range keys {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// Float returns the attribute parsed as a float.
func (a AttributeMap) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Device is a registry entry.
type Device struct {
	DevID      string
	Attributes AttributeMap
}

// Directory maps devices to their attributes.
// A published Directory is never modified, build a new one instead.
type Directory map[AppDeviceID]AttributeMap

// Application returns the entries belonging to appID.
func (d Directory) Application(appID string) Directory {
	res := make(Directory)
	for k, v := range d {
		if k.AppID == appID {
			res[k] = v
		}
	}
	return res
}
