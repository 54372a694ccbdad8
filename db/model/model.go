package model

// Interface model interface
type Interface interface {
	TableName() string
}
