package relay

import (
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
)

// errorText holds the English and Arabic summary for each error code.
var errorText = map[string][2]string{
	protocol.ErrorCodeInvalidMessage:  {"invalid message", "رسالة غير صالحة"},
	protocol.ErrorCodeUnauthorized:    {"not authenticated", "الجلسة غير مصادق عليها"},
	protocol.ErrorCodePolicyBlocked:   {"code execution blocked", "تم حظر تنفيذ الكود"},
	protocol.ErrorCodeExecutionFailed: {"code execution failed", "فشل تنفيذ الكود"},
	protocol.ErrorCodeInternalError:   {"internal error", "حدث خطأ داخلي"},
}

// sendError reports a failure, correlated when requestID is set.
func (s *Server) sendError(conn *Connection, requestID, code, detail string) {
	text, ok := errorText[code]
	if !ok {
		text = errorText[protocol.ErrorCodeInternalError]
	}
	msg := protocol.ErrorMessage{
		Type:      protocol.TypeError,
		RequestID: requestID,
		Code:      code,
		Error:     text[0],
		ErrorAr:   text[1],
	}
	if detail != "" {
		msg.Error += ": " + detail
	}
	s.send(conn, msg)
}
