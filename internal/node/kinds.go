package node

import (
	"fmt"
	"strconv"
	"strings"
)

// SensorType is the kind of sensor a node presents (S_* in the protocol).
type SensorType int

// Sensor types, numbered as on the wire.
const (
	SensorDoor SensorType = iota
	SensorMotion
	SensorSmoke
	SensorBinary
	SensorDimmer
	SensorCover
	SensorTemp
	SensorHum
	SensorBaro
	SensorWind
	SensorRain
	SensorUV
	SensorWeight
	SensorPower
	SensorHeater
	SensorDistance
	SensorLightLevel
	SensorArduinoNode
	SensorArduinoRepeaterNode
	SensorLock
	SensorIR
	SensorWater
	SensorAirQuality
	SensorCustom
	SensorDust
	SensorSceneController
	SensorRGBLight
	SensorRGBWLight
	SensorColorSensor
	SensorHVAC
	SensorMultimeter
	SensorSprinkler
	SensorWaterLeak
	SensorSound
	SensorVibration
	SensorMoisture
)

// MaxSensorType is the highest sensor type value the gateway understands.
const MaxSensorType = SensorMoisture

// SensorLight is the legacy name of SensorBinary.
const SensorLight = SensorBinary

var sensorTypeNames = [...]string{
	"S_DOOR", "S_MOTION", "S_SMOKE", "S_BINARY", "S_DIMMER", "S_COVER", "S_TEMP",
	"S_HUM", "S_BARO", "S_WIND", "S_RAIN", "S_UV", "S_WEIGHT", "S_POWER", "S_HEATER",
	"S_DISTANCE", "S_LIGHT_LEVEL", "S_ARDUINO_NODE", "S_ARDUINO_REPEATER_NODE",
	"S_LOCK", "S_IR", "S_WATER", "S_AIR_QUALITY", "S_CUSTOM", "S_DUST",
	"S_SCENE_CONTROLLER", "S_RGB_LIGHT", "S_RGBW_LIGHT", "S_COLOR_SENSOR", "S_HVAC",
	"S_MULTIMETER", "S_SPRINKLER", "S_WATER_LEAK", "S_SOUND", "S_VIBRATION",
	"S_MOISTURE",
}

// Valid reports whether t is within the known range of sensor types.
func (t SensorType) Valid() bool {
	return t >= 0 && t <= MaxSensorType
}

func (t SensorType) String() string {
	if t.Valid() {
		return sensorTypeNames[t]
	}
	return "S_UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// MarshalText encodes the type by name.
func (t SensorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts a name ("S_TEMP") or its decimal value ("6").
func (t *SensorType) UnmarshalText(text []byte) error {
	v, err := lookupKind(string(text), sensorTypeNames[:])
	if err != nil {
		return fmt.Errorf("sensor type: %w", err)
	}
	*t = SensorType(v)
	return nil
}

// DataType is the kind of value carried by SET and REQ messages (V_* in the protocol).
type DataType int

// Data types, numbered as on the wire.
const (
	DataTemp DataType = iota
	DataHum
	DataStatus
	DataPercentage
	DataPressure
	DataForecast
	DataRain
	DataRainRate
	DataWind
	DataGust
	DataDirection
	DataUV
	DataWeight
	DataDistance
	DataImpedance
	DataArmed
	DataTripped
	DataWatt
	DataKWh
	DataSceneOn
	DataSceneOff
	DataHVACFlowState
	DataHVACSpeed
	DataLightLevel
	DataVar1
	DataVar2
	DataVar3
	DataVar4
	DataVar5
	DataUp
	DataDown
	DataStop
	DataIRSend
	DataIRReceive
	DataFlow
	DataVolume
	DataLockStatus
	DataLevel
	DataVoltage
	DataCurrent
	DataRGB
	DataRGBW
	DataID
	DataUnitPrefix
	DataHVACSetpointCool
	DataHVACSetpointHeat
	DataHVACFlowMode
)

// Legacy aliases still sent by older sketches.
const (
	DataLight  = DataStatus
	DataDimmer = DataPercentage
)

// MaxDataType is the highest data type value with a known name.
const MaxDataType = DataHVACFlowMode

var dataTypeNames = [...]string{
	"V_TEMP", "V_HUM", "V_STATUS", "V_PERCENTAGE", "V_PRESSURE", "V_FORECAST",
	"V_RAIN", "V_RAINRATE", "V_WIND", "V_GUST", "V_DIRECTION", "V_UV", "V_WEIGHT",
	"V_DISTANCE", "V_IMPEDANCE", "V_ARMED", "V_TRIPPED", "V_WATT", "V_KWH",
	"V_SCENE_ON", "V_SCENE_OFF", "V_HVAC_FLOW_STATE", "V_HVAC_SPEED",
	"V_LIGHT_LEVEL", "V_VAR1", "V_VAR2", "V_VAR3", "V_VAR4", "V_VAR5", "V_UP",
	"V_DOWN", "V_STOP", "V_IR_SEND", "V_IR_RECEIVE", "V_FLOW", "V_VOLUME",
	"V_LOCK_STATUS", "V_LEVEL", "V_VOLTAGE", "V_CURRENT", "V_RGB", "V_RGBW", "V_ID",
	"V_UNIT_PREFIX", "V_HVAC_SETPOINT_COOL", "V_HVAC_SETPOINT_HEAT",
	"V_HVAC_FLOW_MODE",
}

func (d DataType) String() string {
	if d >= 0 && d <= MaxDataType {
		return dataTypeNames[d]
	}
	return "V_UNKNOWN(" + strconv.Itoa(int(d)) + ")"
}

// MarshalText encodes known data types by name and unknown ones by number,
// so map keys survive a JSON round trip.
func (d DataType) MarshalText() ([]byte, error) {
	if d >= 0 && d <= MaxDataType {
		return []byte(dataTypeNames[d]), nil
	}
	return []byte(strconv.Itoa(int(d))), nil
}

// UnmarshalText accepts a name ("V_TEMP") or its decimal value ("0").
func (d *DataType) UnmarshalText(text []byte) error {
	v, err := lookupKind(string(text), dataTypeNames[:])
	if err != nil {
		return fmt.Errorf("data type: %w", err)
	}
	*d = DataType(v)
	return nil
}

func lookupKind(s string, names []string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range names {
		if name == upper {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown name %q", s)
}
