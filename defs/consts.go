package defs

// Common labels for logging
const (
	LabelComponent = "component"
	LabelName      = "name"
	LabelPart      = "part"

	LabelAddress = "address"
	LabelClient  = "client"

	LabelBucket = "bucket"
	LabelKey    = "key"
)

// ObjectSourceTag identifies this agent in the metadata of every uploaded object
const ObjectSourceTag = "xml-stream-aggregator"
