package auth

import (
	"bytes"
	"encoding/json"

	"serotonyl.ru/flip-bot/internal/common"
)

// DecodeFields разбирает подписанный JSON-объект в строковые поля.
// Строки и числа берутся в исходной записи. Логические значения и null
// записываются как True, False и None: так их форматирует подписывающая
// сторона провайдера. Вложенные значения кодируются обратно в JSON.
func DecodeFields(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, common.InvalidInput("некорректное тело запроса: %v", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			fields[k] = "None"
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			if val {
				fields[k] = "True"
			} else {
				fields[k] = "False"
			}
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, common.InvalidInput("поле %s: %v", k, err)
			}
			fields[k] = string(b)
		}
	}
	return fields, nil
}
