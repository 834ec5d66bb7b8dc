package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log"
	"net"
	"time"

	"github.com/brocaar/lorawan"

	"github.com/akhenakh/sensorbridge/gw"
)

var (
	addr    = flag.String("addr", "localhost:1700", "Addr to sent the packet to")
	devAddr = flag.String("devAddr", "26011bda", "ABP device address")
	nwkSKey = flag.String("nwkSKey", "0102030405060708090a0b0c0d0e0f10", "network session key")
	appSKey = flag.String("appSKey", "100f0e0d0c0b0a090807060504030201", "application session key")
	payload = flag.String("payload", "01a400b4022600d2", "hex encoded application payload")
	port    = flag.Uint("port", 1, "LoRaWAN port")
	fcnt    = flag.Uint("fcnt", 0, "frame counter")
)

func main() {
	flag.Parse()

	var da lorawan.DevAddr
	if err := da.UnmarshalText([]byte(*devAddr)); err != nil {
		log.Fatal(err)
	}
	nkey, err := gw.ParseKey(*nwkSKey)
	if err != nil {
		log.Fatal(err)
	}
	akey, err := gw.ParseKey(*appSKey)
	if err != nil {
		log.Fatal(err)
	}
	pl, err := hex.DecodeString(*payload)
	if err != nil {
		log.Fatal(err)
	}

	fport := uint8(*port)
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.UnconfirmedDataUp,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: da,
				FCnt:    uint32(*fcnt),
			},
			FPort:      &fport,
			FRMPayload: []lorawan.Payload{&lorawan.DataPayload{Bytes: pl}},
		},
	}
	if err := phy.EncryptFRMPayload(akey); err != nil {
		log.Fatal(err)
	}
	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, nkey, lorawan.AES128Key{}); err != nil {
		log.Fatal(err)
	}
	lorab, err := phy.MarshalBinary()
	if err != nil {
		log.Fatal(err)
	}

	rxpk := map[string]interface{}{
		"time": time.Now().UTC().Format(time.RFC3339Nano),
		"tmst": 3512348611,
		"chan": 2,
		"rfch": 0,
		"freq": 868.1,
		"stat": 1,
		"modu": "LORA",
		"datr": "SF7BW125",
		"codr": "4/5",
		"rssi": -35,
		"lsnr": 5.1,
		"size": len(lorab),
		"data": base64.StdEncoding.EncodeToString(lorab),
	}
	raw, err := json.Marshal(gwMessage{Rxpk: []interface{}{rxpk}})
	if err != nil {
		log.Fatal(err)
	}

	raddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Fatal(err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	//  Bytes  | Function
	//:------:|---------------------------------------------------------------------
	// 0      | protocol version = 2
	// 1-2    | random token
	// 3      | PUSH_DATA identifier 0x00
	// 4-11   | Gateway unique identifier (MAC address)
	// 12-end | JSON object, starting with {, ending with }, see section 4

	p := []byte{2, 'A', 'B', 0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0xDE, 0xAD, 0xBE}

	p = append(p, raw...)
	if _, err = conn.Write(p); err != nil {
		log.Fatal(err)
	}

	log.Println("sent", string(raw))
}

type gwMessage struct {
	Rxpk []interface{} `json:"rxpk"`
}
