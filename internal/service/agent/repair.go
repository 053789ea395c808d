package agent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// repairArguments 修复 LLM 生成的参数 JSON，无法修复时原样返回
func repairArguments(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	if json.Valid([]byte(s)) {
		return s
	}

	s = strings.TrimPrefix(s, "<|FunctionCallBegin|>")
	s = strings.TrimSuffix(s, "<|FunctionCallEnd|>")
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// 截取对象区域，去掉前后说明文字
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		if sub := s[i : j+1]; json.Valid([]byte(sub)) {
			return sub
		}
		s = s[i:]
	}
	if json.Valid([]byte(s)) {
		return s
	}

	out, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return s
	}
	return out
}
