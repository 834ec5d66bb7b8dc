package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/akhenakh/cayenne"

	"github.com/akhenakh/sensorbridge/decoder"
	"github.com/akhenakh/sensorbridge/sensor"
)

var (
	encoding = flag.String("encoding", "cayenne", "payload encoding: ttnulm, sps30 or cayenne")

	pm10  = flag.Float64("pm10", 42, "PM10 ug/m3")
	pm2_5 = flag.Float64("pm2_5", 18, "PM2.5 ug/m3")
	pm1_0 = flag.Float64("pm1_0", 10, "PM1.0 ug/m3")
	pm4_0 = flag.Float64("pm4_0", 20, "PM4.0 ug/m3")
	humi  = flag.Float64("humi", 55, "relative humidity %")
	temp  = flag.Float64("temp", 21, "temperature C")

	lat = flag.Float64("lat", 0, "The Latitude, cayenne only, no position when 0")
	lng = flag.Float64("lng", 0, "The Longitude, cayenne only")
)

func main() {
	flag.Parse()

	enc, err := decoder.ParseEncoding(*encoding)
	if err != nil {
		log.Fatal(err)
	}

	var b []byte
	switch enc {
	case decoder.TTNUlm:
		b = make([]byte, 8)
		binary.BigEndian.PutUint16(b[0:], tenths(*pm10))
		binary.BigEndian.PutUint16(b[2:], tenths(*pm2_5))
		binary.BigEndian.PutUint16(b[4:], tenths(*humi))
		binary.BigEndian.PutUint16(b[6:], uint16(int16(math.Round(*temp*10))))
	case decoder.SPS30:
		b = make([]byte, 20)
		for i, v := range []float64{*pm1_0, *pm2_5, *pm4_0, *pm10} {
			binary.BigEndian.PutUint16(b[i*2:], tenths(v))
		}
	case decoder.Cayenne:
		e := cayenne.NewEncoder()
		e.AddAnalogInput(1, float32(*pm10))
		e.AddAnalogInput(2, float32(*pm2_5))
		e.AddRelativeHumidity(1, float32(*humi))
		e.AddTemperature(1, float32(*temp))
		if *lat != 0 || *lng != 0 {
			e.AddGPS(1, float32(*lat), float32(*lng), 0.0)
		}
		b = e.Bytes()
	default:
		log.Fatalf("no payload generator for %s", enc)
	}

	port := 1
	if enc == decoder.SPS30 {
		port = decoder.SPS30Port
	}

	// decoding it back as the bridge would
	dec, err := decoder.NewSet(nil).Get(enc)
	if err != nil {
		log.Fatal(err)
	}
	d, err := dec(sensor.NewUplink("app", "dev", port, b))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Data", hex.EncodeToString(b))
	fmt.Println("Base64", base64.StdEncoding.EncodeToString(b))
	fmt.Println("Port", port)
	fmt.Println("Decoded", d)
}

func tenths(v float64) uint16 {
	return uint16(math.Round(v * 10))
}
