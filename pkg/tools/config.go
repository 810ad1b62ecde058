package tools

// LoadConfig 读取yaml配置文件并填充default标签
func LoadConfig(filename string, v interface{}) error {
	if err := UnmarshalFileYaml(filename, v); err != nil {
		return err
	}

	return DoTagFunc(v, []TagFunc{SetDefaultValueIfNil})
}
