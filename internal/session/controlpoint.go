package session

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
)

// Writer writes raw commands to the ANCS Control Point characteristic.
type Writer interface {
	WriteControlPoint(data []byte) error
}

// ControlPoint encodes engine commands and writes them to the phone. Every Get command
// registers the response it expects with the Data Source assembler.
type ControlPoint struct {
	w         Writer
	assembler *ancs.Assembler
	maxLength uint16
	logger    *logrus.Logger
}

// NewControlPoint creates a ControlPoint. maxLength bounds Title, Subtitle and Message;
// zero selects ancs.DefaultMaxAttributeLength.
func NewControlPoint(w Writer, assembler *ancs.Assembler, maxLength uint16, logger *logrus.Logger) *ControlPoint {
	if maxLength == 0 {
		maxLength = ancs.DefaultMaxAttributeLength
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ControlPoint{
		w:         w,
		assembler: assembler,
		maxLength: maxLength,
		logger:    logger,
	}
}

func (cp *ControlPoint) RequestNotificationAttributes(uid uint32, ids []ancs.NotificationAttributeID) error {
	data := ancs.EncodeNotificationAttributesRequestWithLimit(uid, ids, cp.maxLength)
	return cp.request(ancs.CommandGetNotificationAttributes, len(ids), data, logrus.Fields{"uid": uid})
}

func (cp *ControlPoint) RequestAppAttributes(appID string, ids []ancs.AppAttributeID) error {
	data := ancs.EncodeAppAttributesRequest(appID, ids)
	return cp.request(ancs.CommandGetAppAttributes, len(ids), data, logrus.Fields{"app": appID})
}

func (cp *ControlPoint) PerformAction(uid uint32, action ancs.ActionID) error {
	data := ancs.EncodeActionRequest(uid, action)
	return cp.request(ancs.CommandPerformNotificationAction, 0, data, logrus.Fields{"uid": uid, "action": action})
}

// request registers the expectation before writing: the response may be delivered before
// the write returns.
func (cp *ControlPoint) request(cmd ancs.CommandID, attrCount int, data []byte, fields logrus.Fields) error {
	cp.assembler.Expect(cmd, attrCount)

	if err := cp.w.WriteControlPoint(data); err != nil {
		cp.assembler.Withdraw(cmd)
		return &ancs.TransportError{Op: "write " + cmd.String(), Err: err}
	}

	cp.logger.WithFields(fields).WithFields(logrus.Fields{
		"command": cmd,
		"bytes":   len(data),
	}).Debug("Control point command written")
	return nil
}
