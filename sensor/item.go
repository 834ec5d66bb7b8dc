package sensor

import "fmt"

// Item is a canonical measurement kind.
type Item int

const (
	PM1_0 Item = iota
	PM2_5
	PM4_0
	PM10

	// particle counts, #/cm3
	PM0_5_N
	PM1_0_N
	PM2_5_N
	PM4_0_N
	PM10_N

	// typical particle size, um
	PM_TPS

	HUMI
	TEMP
	PRESSURE

	POS_LAT
	POS_LON
	POS_ALT

	LORA_RSSI
	LORA_SNR
	LORA_SF

	itemCount
)

var itemNames = [itemCount]string{
	PM1_0:     "PM1_0",
	PM2_5:     "PM2_5",
	PM4_0:     "PM4_0",
	PM10:      "PM10",
	PM0_5_N:   "PM0_5_N",
	PM1_0_N:   "PM1_0_N",
	PM2_5_N:   "PM2_5_N",
	PM4_0_N:   "PM4_0_N",
	PM10_N:    "PM10_N",
	PM_TPS:    "PM_TPS",
	HUMI:      "HUMI",
	TEMP:      "TEMP",
	PRESSURE:  "PRESSURE",
	POS_LAT:   "POS_LAT",
	POS_LON:   "POS_LON",
	POS_ALT:   "POS_ALT",
	LORA_RSSI: "LORA_RSSI",
	LORA_SNR:  "LORA_SNR",
	LORA_SF:   "LORA_SF",
}

// Items returns every known item in enumeration order.
func Items() []Item {
	res := make([]Item, itemCount)
	for i := range res {
		res[i] = Item(i)
	}
	return res
}

func (i Item) Valid() bool {
	return i >= 0 && i < itemCount
}

func (i Item) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Item(%d)", int(i))
	}
	return itemNames[i]
}

// ParseItem returns the item named s, names are case sensitive.
func ParseItem(s string) (Item, error) {
	for i, n := range itemNames {
		if n == s {
			return Item(i), nil
		}
	}
	return -1, fmt.Errorf("unknown sensor item %q", s)
}
