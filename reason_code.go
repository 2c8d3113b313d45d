package qute

import "errors"

// ReasonCode is an MQTT v5 reason code as carried in CONNACK, PUBACK, PUBREC,
// PUBREL, PUBCOMP, SUBACK, UNSUBACK, DISCONNECT and AUTH packets. Values
// 0x00-0x7F indicate success or a normal outcome; 0x80-0xFF indicate failure.
type ReasonCode uint8

// IsReasonCode reports whether err is (or wraps) an *MqttError carrying code.
func IsReasonCode(err error, code ReasonCode) bool {
	var mqttErr *MqttError
	if errors.As(err, &mqttErr) {
		return mqttErr.ReasonCode == code
	}
	return false
}
