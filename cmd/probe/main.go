package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/berfenger/solaxgw2mqtt/pkg/solax_modbus"

	"github.com/goburrow/modbus"
)

// probe polls a meter bus the way a Solax inverter does and prints the demand it is served.
func main() {
	portPtr := flag.String("port", "/dev/ttyUSB0", "Path to your RS485 device")
	baudRatePtr := flag.Int("baudRate", 9600, "Port baud rate")
	slavePtr := flag.Int("slave", int(solax_modbus.DEFAULT_METER_ADDRESS), "Meter address")
	intervalPtr := flag.Duration("interval", time.Second, "Time between polls")
	countPtr := flag.Int("count", 0, "Number of polls, 0 polls forever")
	handshakePtr := flag.Bool("handshake", true, "Read the handshake register first")

	flag.Parse()

	handler := modbus.NewRTUClientHandler(*portPtr)
	handler.BaudRate = *baudRatePtr
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = byte(*slavePtr)
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		fmt.Printf("could not open %s: %v\n", *portPtr, err)
		os.Exit(1)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)

	if *handshakePtr {
		if _, err := client.ReadHoldingRegisters(uint16(solax_modbus.METER_REGISTER_HANDSHAKE), 1); err != nil {
			fmt.Printf("handshake failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("handshake OK")
	}

	for i := 0; *countPtr == 0 || i < *countPtr; i++ {
		if i > 0 {
			time.Sleep(*intervalPtr)
		}
		floatWatts, err := readFloatPower(client)
		if err != nil {
			fmt.Printf("float power read failed: %v\n", err)
			continue
		}
		intWatts, err := readInt16Power(client)
		if err != nil {
			fmt.Printf("int16 power read failed: %v\n", err)
			continue
		}
		fmt.Printf("%s demand: %.1f W (int16 %d W)\n", time.Now().Format(time.TimeOnly), floatWatts, intWatts)
	}
}

func readFloatPower(client modbus.Client) (float64, error) {
	res, err := client.ReadInputRegisters(uint16(solax_modbus.METER_REGISTER_POWER_FLOAT), 2)
	if err != nil {
		return 0, err
	}
	if len(res) != 4 {
		return 0, fmt.Errorf("unexpected response size %d", len(res))
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(res))), nil
}

func readInt16Power(client modbus.Client) (int16, error) {
	res, err := client.ReadHoldingRegisters(uint16(solax_modbus.METER_REGISTER_POWER_INT16), 1)
	if err != nil {
		return 0, err
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected response size %d", len(res))
	}
	return int16(binary.BigEndian.Uint16(res)), nil
}
