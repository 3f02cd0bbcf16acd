package frames

// Meta keys shared across relay components.
const (
	MetaSessionID   = "session_id"
	MetaInterviewID = "interview_id"
	MetaSource      = "source"
	MetaIsFinal     = "is_final"
	MetaReason      = "reason"
	MetaQuestionNum = "question_number"
	MetaQuestionTyp = "question_type"
	MetaEncoding    = "encoding"
)
