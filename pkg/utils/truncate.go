package utils

// TruncateRunes 按字符数截断内容，多字节字符不被截断
// 会话预览等冗余字段依赖该函数保证截断位置与字符边界一致
func TruncateRunes(content string, maxLength int) string {
	runes := []rune(content)
	if len(runes) <= maxLength {
		return content
	}
	return string(runes[:maxLength])
}
