package flow

import (
	"fmt"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/util"
)

var documentEncDec = util.NewJsonEncoderDecoder[model.FlowDocument]()

func ParseDocument(data []byte) (*model.FlowDocument, error) {
	doc, err := documentEncDec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("malformed flow document %w", err)
	}
	return doc, nil
}
