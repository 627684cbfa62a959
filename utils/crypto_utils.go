package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// CalculateMD5 计算字符串的MD5哈希值，返回32位小写十六进制字符串
func CalculateMD5(input string) string {
	hasher := md5.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// normalizeForFingerprint 归一化文本：小写并压缩空白
func normalizeForFingerprint(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TipFingerprint 计算小贴士的内容指纹
// 相同的标题+正文+详情（忽略大小写和空白差异）得到相同指纹，用于生成内容去重
func TipFingerprint(title, body, details string) string {
	return CalculateMD5(normalizeForFingerprint(title) + "|" +
		normalizeForFingerprint(body) + "|" +
		normalizeForFingerprint(details))
}
