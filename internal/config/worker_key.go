package config

type WorkerKeyStruct struct {
	PersistExamEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistExamEventsQueue: "persist_exam_events_queue",
}
