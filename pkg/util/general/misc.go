/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package general

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ParseLinuxListFormat parses the kernel list format (e.g. "0-2,5") used by
// files such as /sys/devices/system/cpu/online into a sorted slice.
func ParseLinuxListFormat(listStr string) ([]int64, error) {
	listStr = strings.TrimSpace(listStr)
	if listStr == "" {
		return nil, nil
	}

	var list []int64
	for _, sec := range strings.Split(listStr, ",") {
		boundaries := strings.Split(sec, "-")
		switch len(boundaries) {
		case 1:
			val, err := strconv.ParseInt(boundaries[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid section %s in %s", sec, listStr)
			}
			list = append(list, val)
		case 2:
			start, err := strconv.ParseInt(boundaries[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid section %s in %s", sec, listStr)
			}
			end, err := strconv.ParseInt(boundaries[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid section %s in %s", sec, listStr)
			}
			if start > end {
				return nil, fmt.Errorf("invalid section %s in %s", sec, listStr)
			}
			for ; start <= end; start++ {
				list = append(list, start)
			}
		default:
			return nil, fmt.Errorf("%s contains strange section %s", listStr, sec)
		}
	}

	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list, nil
}

func ParseLinuxListFormatFromFile(filePath string) ([]int64, error) {
	s, err := ReadStringFromFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseLinuxListFormat(s)
}

// ConvertLinuxListToString is the reverse of ParseLinuxListFormat.
func ConvertLinuxListToString(numbers []int64) string {
	if len(numbers) == 0 {
		return ""
	}

	sorted := append([]int64(nil), numbers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	type rng struct {
		start int64
		end   int64
	}

	ranges := []rng{{sorted[0], sorted[0]}}
	for i := 1; i < len(sorted); i++ {
		last := &ranges[len(ranges)-1]
		if sorted[i] == last.end {
			continue
		}
		if sorted[i] == last.end+1 {
			last.end = sorted[i]
			continue
		}
		ranges = append(ranges, rng{sorted[i], sorted[i]})
	}

	var result bytes.Buffer
	for i, r := range ranges {
		if i > 0 {
			result.WriteString(",")
		}
		if r.start == r.end {
			result.WriteString(strconv.FormatInt(r.start, 10))
		} else {
			result.WriteString(fmt.Sprintf("%d-%d", r.start, r.end))
		}
	}
	return result.String()
}

// ReadStringFromFile returns the trimmed content of the given file.
func ReadStringFromFile(file string) (string, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read(%s), err %v", file, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func ReadInt64FromFile(file string) (int64, error) {
	s, err := ReadStringFromFile(file)
	if err != nil {
		return -1, err
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("failed to ParseInt(%s), err %v", s, err)
	}
	return val, nil
}

func ReadUint64FromFile(file string) (uint64, error) {
	s, err := ReadStringFromFile(file)
	if err != nil {
		return 0, err
	}

	val, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to ParseUint(%s), err %v", s, err)
	}
	return val, nil
}

// ClampInt bounds val into [min, max].
func ClampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
