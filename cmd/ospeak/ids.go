package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseIDs 解析 "1,5,22;3" 形式的批次。空行保留，交给桥接层报告输入错误。
func parseIDs(s string) ([][]int64, error) {
	var batch [][]int64
	for i, rowStr := range strings.Split(s, ";") {
		row := []int64{}
		for _, f := range strings.Split(rowStr, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			id, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行: %q 不是整数", i, f)
			}
			row = append(row, id)
		}
		batch = append(batch, row)
	}
	return batch, nil
}
